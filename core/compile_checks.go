package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Storage        = (*MemoryStorage)(nil)
	_ ExpiryNotifier = ExpiryNotifierFunc(nil)
	_ Codec[string]  = StringCodec{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
