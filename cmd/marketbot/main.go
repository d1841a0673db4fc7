// Command marketbot runs the marketplace Telegram bot.
package main

import (
	"log"

	"github.com/m3rciful/marketbot/core/cmd"
	"github.com/m3rciful/marketbot/market/app"
)

func main() {
	err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        app.Load,
		Bootstrap:         app.Bootstrap,
	})
	if err != nil {
		log.Fatalf("marketbot: %v", err)
	}
}
