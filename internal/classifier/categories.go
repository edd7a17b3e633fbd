package classifier

import "strings"

// Categories is the closed set of labels the model may assign. Anything
// outside this list is rejected and falls back to FallbackCategory.
var Categories = []string{
	"Work/Internship",
	"Classes/Research",
	"Events/Seminars",
	"Billing/Payments",
	"Banking/Securities",
	"Taxes/Insurance",
	"Flights/Travel",
	"Transit/Mobility",
	"Lodging/Hotels",
	"E-commerce",
	"Subscriptions/Renewals",
	"Social/Notifications",
	"Newsletters",
	"Ads/Promotions",
	"Hobbies/Community",
	"Health/Medical",
	"Financial Services",
	"Real Estate/Housing",
	"Contracts/Signatures",
	"Legal/Government",
	"Study Materials/Learning",
	"Volunteering/Donations",
	"Photo/Video Sharing",
	"IoT/Smart Home",
	"Other",
}

const (
	// FallbackCategory marks a message the model could not classify.
	FallbackCategory = "unclassified"
	// FallbackPriority is the neutral midpoint of the priority scale.
	FallbackPriority = 3

	MinPriority = 1
	MaxPriority = 5
)

var categorySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Categories))
	for _, c := range Categories {
		set[c] = struct{}{}
	}
	return set
}()

// ValidCategory reports whether label is one of the allowed categories.
func ValidCategory(label string) bool {
	_, ok := categorySet[strings.TrimSpace(label)]
	return ok
}
