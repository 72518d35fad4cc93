package etcd

import (
	clientv3 "go.etcd.io/etcd/client/v3"
)

type IWatchHandler interface {
	OnEvent(e ...*clientv3.Event)
}

// IWatchHandlerFunc adapts a function to IWatchHandler.
type IWatchHandlerFunc func(e ...*clientv3.Event)

func (f IWatchHandlerFunc) OnEvent(e ...*clientv3.Event) {
	f(e...)
}
