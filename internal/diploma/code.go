package diploma

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dre-etl/internal/components/chrono"

	"github.com/antzucaro/matchr"
)

// Types lists the diploma type keywords accepted as the first token of a code.
var Types = []string{"decreto-lei", "lei", "portaria"}

var (
	serialRegex = regexp.MustCompile(`^[0-9]+(-[A-Za-z])?$`)
	yearRegex   = regexp.MustCompile(`^[0-9]+$`)
)

// NormalizeCode turns a human written code such as "Decreto-Lei 10/2024" into the form the
// portal publishes it under, "Decreto-Lei n.º 10/2024".
//
// The first token must be one of Types (any case), the last token must be "<serial>[/<year>]"
// where the year is no later than next year according to clock.
func NormalizeCode(raw string, clock chrono.API) (string, error) {
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return "", invalidCode(raw, "code is empty")
	}

	kind := tokens[0]
	if !isType(kind) {
		err := invalidCode(raw, fmt.Sprintf("%q does not match any of the diploma types %v", kind, Types))
		err.Suggestion = suggestType(kind)
		return "", err
	}

	ending := tokens[len(tokens)-1]
	parts := strings.Split(ending, "/")
	if len(parts) > 2 {
		return "", invalidCode(raw, "the diploma's number or year is not correctly defined")
	}

	if len(parts) == 2 {
		if !yearRegex.MatchString(parts[1]) {
			return "", invalidCode(raw, fmt.Sprintf("year %q is not a number", parts[1]))
		}
		year, err := strconv.Atoi(parts[1])
		if err != nil {
			return "", invalidCode(raw, fmt.Sprintf("year %q is not a number", parts[1]))
		}
		maxYear := clock.Now().Year() + 1
		if year > maxYear {
			return "", invalidCode(raw, fmt.Sprintf("the diploma's year cannot be greater than %d", maxYear))
		}
	}

	if !serialRegex.MatchString(parts[0]) {
		return "", invalidCode(raw, fmt.Sprintf("number %q is not correctly defined", parts[0]))
	}

	return fmt.Sprintf("%s n.º %s", kind, ending), nil
}

func isType(token string) bool {
	token = strings.ToLower(token)
	for _, t := range Types {
		if token == t {
			return true
		}
	}
	return false
}

func suggestType(token string) string {
	token = strings.ToLower(token)
	best := ""
	bestScore := 0.0
	for _, t := range Types {
		score := matchr.JaroWinkler(token, t, false)
		if score > bestScore {
			best = t
			bestScore = score
		}
	}
	if bestScore < 0.8 {
		return ""
	}
	return best
}
