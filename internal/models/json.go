package models

import (
	"database/sql/driver"
	"fmt"
)

// Payload - JSON-документ в колонке jsonb (postgres) или text (sqlite).
type Payload []byte

func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[:0], data...)
	return nil
}

func (p Payload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	return string(p), nil
}

func (p *Payload) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = nil
	case string:
		*p = Payload(v)
	case []byte:
		*p = append(Payload(nil), v...)
	default:
		return fmt.Errorf("payload: неподдерживаемый тип %T", src)
	}
	return nil
}
