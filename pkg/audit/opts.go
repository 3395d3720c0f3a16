package audit

import "net/http"

func WithUsername(username string) Option {
	return func(i *Indexer) {
		i.username = username
	}
}

func WithPassword(password string) Option {
	return func(i *Indexer) {
		i.password = password
	}
}

func WithSkipTLS() Option {
	return func(i *Indexer) {
		i.insecureSkipVerify = true
	}
}

func WithIndex(index string) Option {
	return func(i *Indexer) {
		i.index = index
	}
}

// WithTransport replaces the HTTP transport of the OpenSearch client.
func WithTransport(rt http.RoundTripper) Option {
	return func(i *Indexer) {
		i.transport = rt
	}
}
