// Package conv provides checked integer conversions.
//
// Arena block headers store int32 lengths and journal frames store uint32
// lengths; these helpers reject values that would wrap.
package conv
