package ldb

import (
	"github.com/dashpay/dashspv/infrastructure/logger"
)

var log = logger.RegisterSubSystem("DTBS")
