// Package session maps a user to at most one in-flight guided flow and the
// draft data it has accumulated.
package session
