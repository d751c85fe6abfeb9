package normalize

// Upstream feeds disagree on naming (snake_case vs camelCase). Each canonical
// field carries an ordered list of accepted aliases, resolved by first match.
var fieldAliases = map[string][]string{
	"district_id":              {"district_id", "districtId"},
	"district_name":            {"district_name", "districtName"},
	"state_name":               {"state_name", "stateName"},
	"state_code":               {"state_code", "stateCode"},
	"latitude":                 {"latitude", "lat"},
	"longitude":                {"longitude", "lng", "lon"},
	"population":               {"population"},
	"area":                     {"area"},
	"year":                     {"year"},
	"month":                    {"month"},
	"financial_year":           {"financial_year", "financialYear"},
	"total_households":         {"total_households", "totalHouseholds"},
	"households_demanded_work": {"households_demanded_work", "householdsDemandedWork"},
	"households_provided_work": {"households_provided_work", "householdsProvidedWork"},
	"total_persons":            {"total_persons", "totalPersons"},
	"persons_demanded_work":    {"persons_demanded_work", "personsDemandedWork"},
	"persons_provided_work":    {"persons_provided_work", "personsProvidedWork"},
	"total_workdays":           {"total_workdays", "totalWorkdays"},
	"workdays_generated":       {"workdays_generated", "workdaysGenerated"},
	"total_wages":              {"total_wages", "totalWages"},
	"wages_paid":               {"wages_paid", "wagesPaid"},
	"material_cost":            {"material_cost", "materialCost"},
	"administrative_cost":      {"administrative_cost", "administrativeCost"},
}

// canonicalKey maps every accepted alias back to its canonical field name.
var canonicalKey = func() map[string]string {
	m := make(map[string]string)
	for canonical, aliases := range fieldAliases {
		for _, a := range aliases {
			m[a] = canonical
		}
	}
	return m
}()
