package field

import "reflect"

func deepEqualImpl(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}
