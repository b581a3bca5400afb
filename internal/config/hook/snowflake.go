package hook

import (
	"reflect"

	"github.com/mitchellh/mapstructure"
	"pkg.mon.icu/concord/model"
)

var snowflakeType = reflect.TypeOf(model.Snowflake(0))

// Snowflake decodes the quoted decimal identifier form used in config
// files, where YAML would otherwise read large ids as floats.
func Snowflake() mapstructure.DecodeHookFuncType {
	return func(in reflect.Type, out reflect.Type, val interface{}) (interface{}, error) {
		if in.Kind() == reflect.String && out == snowflakeType {
			return model.ParseSnowflake(val.(string))
		}
		return val, nil
	}
}
