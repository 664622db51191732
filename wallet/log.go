package wallet

import (
	"github.com/dashpay/dashspv/infrastructure/logger"
)

var log = logger.RegisterSubSystem("WLLT")
