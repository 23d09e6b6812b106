package intake

import (
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/golang/glog"
	"github.com/prebid/prebid-headertag/analytics"
)

type eventFilter func(event *analytics.Event) bool

func filterEnv(event *analytics.Event) map[string]interface{} {
	env := map[string]interface{}{
		"topic":   "",
		"payload": nil,
	}
	if event != nil {
		env["topic"] = string(event.Topic)
		env["payload"] = event.Payload
	}
	return env
}

func createFilter(filter string, sampleRate float64, random func() float64) (eventFilter, error) {
	var program *vm.Program
	if filter != "" {
		var err error
		program, err = expr.Compile(filter, expr.Env(filterEnv(nil)), expr.AsBool())
		if err != nil {
			return nil, err
		}
	}

	return func(event *analytics.Event) bool {
		if event == nil || sampleRate <= 0 || random() > sampleRate {
			return false
		}
		if program == nil {
			return true
		}
		output, err := expr.Run(program, filterEnv(event))
		if err != nil {
			glog.Errorf("[intake] filter error: %v", err)
			return false
		}
		return output.(bool)
	}, nil
}
