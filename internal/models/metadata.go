package models

import "fmt"

// Metadata - произвольные пары ключ-значение. Значения только примитивные:
// string, bool, числа.
type Metadata map[string]any

func (m Metadata) Validate() error {
	for k, v := range m {
		switch v.(type) {
		case string, bool, float64, float32, int, int32, int64, nil:
		default:
			return invalid("metadata."+k, fmt.Sprintf("unsupported value type %T", v))
		}
	}
	return nil
}

// Clone возвращает копию карты
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
