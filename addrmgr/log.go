// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"github.com/dashpay/dashspv/infrastructure/logger"
	"github.com/dashpay/dashspv/util/panics"
)

var log = logger.RegisterSubSystem("ADXR")
var spawn = panics.GoroutineWrapperFunc(log)
