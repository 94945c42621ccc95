package config

type PushConfig interface {
	GetVAPIDSubject() string
	GetVAPIDPublicKey() string
	GetVAPIDPrivateKey() string
}

type Push struct{}

var _ PushConfig = Push{}

func (Push) GetVAPIDSubject() string {
	return GetEnv("VAPID_SUBJECT", "")
}

func (Push) GetVAPIDPublicKey() string {
	return GetEnv("VAPID_PUBLIC_KEY", "")
}

func (Push) GetVAPIDPrivateKey() string {
	return GetEnv("VAPID_PRIVATE_KEY", "")
}
