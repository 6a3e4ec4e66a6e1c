package assert

import "fmt"

// NotNil panics when a required collaborator was not wired.
func NotNil(value any, name string) {
	if value == nil {
		panic(fmt.Sprintf("expected %s to be not nil", name))
	}
}

func NotEmptyStr(str string, name string) {
	if str == "" {
		panic(fmt.Sprintf("expected %s to be a non-empty string", name))
	}
}
