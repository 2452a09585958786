package core

import "github.com/mohae/deepcopy"

// DeepCopy returns a deep copy of v. Values that deepcopy cannot rebuild as T
// come back unchanged.
func DeepCopy[T any](v T) T {
	copied, ok := deepcopy.Copy(v).(T)
	if !ok {
		return v
	}
	return copied
}
