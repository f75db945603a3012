package locations

import "strings"

// State is a US state with its capital.
type State struct {
	Abbr    string
	Name    string
	Capital string
}

// States lists the 50 states. Territories and DC are excluded.
var States = []State{
	{"AL", "Alabama", "Montgomery"},
	{"AK", "Alaska", "Juneau"},
	{"AZ", "Arizona", "Phoenix"},
	{"AR", "Arkansas", "Little Rock"},
	{"CA", "California", "Sacramento"},
	{"CO", "Colorado", "Denver"},
	{"CT", "Connecticut", "Hartford"},
	{"DE", "Delaware", "Dover"},
	{"FL", "Florida", "Tallahassee"},
	{"GA", "Georgia", "Atlanta"},
	{"HI", "Hawaii", "Honolulu"},
	{"ID", "Idaho", "Boise"},
	{"IL", "Illinois", "Springfield"},
	{"IN", "Indiana", "Indianapolis"},
	{"IA", "Iowa", "Des Moines"},
	{"KS", "Kansas", "Topeka"},
	{"KY", "Kentucky", "Frankfort"},
	{"LA", "Louisiana", "Baton Rouge"},
	{"ME", "Maine", "Augusta"},
	{"MD", "Maryland", "Annapolis"},
	{"MA", "Massachusetts", "Boston"},
	{"MI", "Michigan", "Lansing"},
	{"MN", "Minnesota", "Saint Paul"},
	{"MS", "Mississippi", "Jackson"},
	{"MO", "Missouri", "Jefferson City"},
	{"MT", "Montana", "Helena"},
	{"NE", "Nebraska", "Lincoln"},
	{"NV", "Nevada", "Carson City"},
	{"NH", "New Hampshire", "Concord"},
	{"NJ", "New Jersey", "Trenton"},
	{"NM", "New Mexico", "Santa Fe"},
	{"NY", "New York", "Albany"},
	{"NC", "North Carolina", "Raleigh"},
	{"ND", "North Dakota", "Bismarck"},
	{"OH", "Ohio", "Columbus"},
	{"OK", "Oklahoma", "Oklahoma City"},
	{"OR", "Oregon", "Salem"},
	{"PA", "Pennsylvania", "Harrisburg"},
	{"RI", "Rhode Island", "Providence"},
	{"SC", "South Carolina", "Columbia"},
	{"SD", "South Dakota", "Pierre"},
	{"TN", "Tennessee", "Nashville"},
	{"TX", "Texas", "Austin"},
	{"UT", "Utah", "Salt Lake City"},
	{"VT", "Vermont", "Montpelier"},
	{"VA", "Virginia", "Richmond"},
	{"WA", "Washington", "Olympia"},
	{"WV", "West Virginia", "Charleston"},
	{"WI", "Wisconsin", "Madison"},
	{"WY", "Wyoming", "Cheyenne"},
}

// LookupState finds a state by abbreviation or full name, ignoring case.
func LookupState(input string) (State, bool) {
	in := strings.TrimSpace(input)
	for _, s := range States {
		if strings.EqualFold(s.Abbr, in) || strings.EqualFold(s.Name, in) {
			return s, true
		}
	}
	return State{}, false
}
