package await

import (
	"context"
	"reflect"
)

// AllOf waits until every given awaiter has fired once. Fired cases
// are moved out of the select window, so a ready channel cannot be
// counted twice.
func AllOf(waiters ...Awaiter) Awaiter {
	cases := make([]reflect.SelectCase, 0, len(waiters))
	for _, a := range waiters {
		cases = append(cases, a.bind())
	}
	return &allOfAwaiter{cases: cases}
}

type allOfAwaiter struct {
	cases []reflect.SelectCase
	all   []any
}

func (a *allOfAwaiter) Await(ctx context.Context) bool {
	active := make([]reflect.SelectCase, 0, len(a.cases)+1)
	active = append(active, reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(ctx.Done()),
	})
	active = append(active, a.cases...)

	rest := len(a.cases)
	for rest > 0 {
		choice, val, _ := reflect.Select(active[:rest+1])
		if choice == 0 {
			return false
		}

		if val.IsValid() {
			a.all = append(a.all, val.Interface())
		}
		active[choice], active[rest] = active[rest], active[choice]
		rest--
	}
	return true
}

func (a *allOfAwaiter) Value() (any, bool) {
	return a.all, len(a.all) != 0
}

func (a *allOfAwaiter) bind() reflect.SelectCase {
	panic("await: avoid combine combinators")
}
