package gmail

import "fmt"

// BuildRecencyQuery returns the Gmail search expression for messages
// received within the last days days, excluding spam and trash.
func BuildRecencyQuery(days int) string {
	return fmt.Sprintf("newer_than:%dd -in:spam -in:trash", days)
}
