// Package bitfield provides functionality to pack and unpack struct
// fields into integers. Adapted from the teacher kernel's
// src/bitfield package (itself a simplified version of
// golang.org/x/text/internal/gen/bitfield), extended with an Unpack
// counterpart so a packed word (such as internal/coredump's segment
// flags) can be read back as well as built.
package bitfield

import (
	"fmt"
	"reflect"
)

// Config determines settings for packing and generation.
type Config struct {
	// NumBits fixes the maximum allowed bits for the integer representation.
	NumBits uint
}

// Pack packs annotated bit ranges of struct x into an integer. Only
// fields with a "bitfield" tag are compacted.
func Pack(x interface{}, c *Config) (packed uint64, err error) {
	if c == nil {
		c = &Config{NumBits: 64}
	}

	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, fmt.Errorf("Pack: expected struct, got %v", v.Kind())
	}

	t := v.Type()
	var bitOffset uint

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		bits, ok := fieldBits(field)
		if !ok {
			continue
		}
		if bits == 0 {
			continue
		}

		fieldValue := v.Field(i)
		fieldBits, err := readField(fieldValue, field.Name)
		if err != nil {
			return 0, err
		}

		maxValue := uint64((1 << bits) - 1)
		if fieldBits > maxValue {
			return 0, fmt.Errorf("Pack: value %d exceeds %d bits for field %s", fieldBits, bits, field.Name)
		}

		packed |= fieldBits << bitOffset
		bitOffset += bits
	}

	if c.NumBits > 0 && bitOffset > c.NumBits {
		return 0, fmt.Errorf("Pack: total bits %d exceeds NumBits %d", bitOffset, c.NumBits)
	}
	return packed, nil
}

// Unpack is Pack's inverse: it distributes bits from packed into the
// "bitfield"-tagged fields of x, which must be a pointer to a struct.
func Unpack(x interface{}, packed uint64, c *Config) error {
	v := reflect.ValueOf(x)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("Unpack: expected pointer to struct, got %v", v.Kind())
	}
	v = v.Elem()
	t := v.Type()

	var bitOffset uint
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		bits, ok := fieldBits(field)
		if !ok || bits == 0 {
			continue
		}

		mask := uint64((1 << bits) - 1)
		raw := (packed >> bitOffset) & mask
		bitOffset += bits

		fv := v.Field(i)
		if !fv.CanSet() {
			return fmt.Errorf("Unpack: field %s is not settable", field.Name)
		}
		switch fv.Kind() {
		case reflect.Bool:
			fv.SetBool(raw != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fv.SetUint(raw)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fv.SetInt(int64(raw))
		default:
			return fmt.Errorf("Unpack: unsupported field type %v for field %s", fv.Kind(), field.Name)
		}
	}
	return nil
}

func fieldBits(field reflect.StructField) (uint, bool) {
	tag := field.Tag.Get("bitfield")
	if tag == "" {
		return 0, false
	}
	var bits uint
	if _, err := fmt.Sscanf(tag, ",%d", &bits); err != nil {
		var methodName string
		if _, err := fmt.Sscanf(tag, "%s,%d", &methodName, &bits); err != nil {
			return 0, false
		}
	}
	return bits, true
}

func readField(fieldValue reflect.Value, name string) (uint64, error) {
	switch fieldValue.Kind() {
	case reflect.Bool:
		if fieldValue.Bool() {
			return 1, nil
		}
		return 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fieldValue.Uint(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		val := fieldValue.Int()
		if val < 0 {
			return 0, fmt.Errorf("Pack: negative value %d for field %s", val, name)
		}
		return uint64(val), nil
	default:
		return 0, fmt.Errorf("Pack: unsupported field type %v for field %s", fieldValue.Kind(), name)
	}
}
