package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

type CustomTime struct {
	time.Time
}

// sqlite может вернуть время строкой
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func NewCustomTime(t time.Time) CustomTime {
	return CustomTime{Time: t.UTC()}
}

func (c CustomTime) Value() (driver.Value, error) {
	return c.Time, nil
}

func (c *CustomTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*c = CustomTime{}
	case time.Time:
		*c = CustomTime{Time: v}
	case int64:
		*c = CustomTime{Time: time.Unix(v, 0)}
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CustomTime", value)
	}

	return nil
}

func (c *CustomTime) parse(value string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			*c = CustomTime{Time: t}
			return nil
		}
	}
	return fmt.Errorf("cannot parse time %q", value)
}
