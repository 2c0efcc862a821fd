package chart

import (
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("hiero.chart")

// assert check exp, if exp == false, panic with message. A failed assertion
// means the chart was filled in the wrong order
func assert(exp bool, message string) {
	if !exp {
		panic(errors.New(message))
	}
}
