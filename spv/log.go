package spv

import (
	"github.com/dashpay/dashspv/infrastructure/logger"
	"github.com/dashpay/dashspv/util/panics"
)

var log = logger.RegisterSubSystem("SPVE")
var spawn = panics.GoroutineWrapperFunc(log)
