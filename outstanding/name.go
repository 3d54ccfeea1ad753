package outstanding

import (
	"reflect"
	"runtime"
	"strings"
)

// JobName derives a task name from fn's symbol name. Anonymous functions
// and closures resolve to DefaultName.
func JobName(fn Job) string {
	if fn == nil {
		return DefaultName
	}
	v := reflect.ValueOf(fn)
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return DefaultName
	}
	return symbolName(f.Name())
}

// symbolName reduces a runtime symbol such as
// "github.com/acme/app/jobs.(*Syncer).Flush-fm" to "Flush".
func symbolName(full string) string {
	name := full
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, "-fm")
	// Instantiated generics end in "[...]".
	if strings.HasSuffix(name, "]") {
		if i := strings.LastIndex(name, "["); i >= 0 {
			name = name[:i]
		}
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || isClosureSuffix(name) {
		return DefaultName
	}
	return name
}

// isClosureSuffix matches the compiler's "func1", "func2.3" and "gowrap1" names.
func isClosureSuffix(name string) bool {
	for _, prefix := range []string{"func", "gowrap"} {
		if rest, ok := strings.CutPrefix(name, prefix); ok && rest != "" && isDigits(rest) {
			return true
		}
	}
	return isDigits(name)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
