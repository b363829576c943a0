package sqlite

import "strings"

// The driver reports constraint failures only through the error text, so
// violations are sniffed by the constraint name in the message.
func violates(err error, constraint string) bool {
	return err != nil && strings.Contains(err.Error(), constraint+" constraint failed")
}
