package dynamo

import "errors"

// DefaultEmailIndex is the global secondary index keyed by email.
const DefaultEmailIndex = "email-index"

// Option is a functional option for configuring a [Store].
type Option func(*Options)

// Options holds the configuration for a [Store].
type Options struct {
	emailIndex  string
	dynamoDBAPI API
}

func newOptions() *Options {
	return &Options{
		emailIndex: DefaultEmailIndex,
	}
}

func (o *Options) validate() error {
	if o.emailIndex == "" {
		return errors.New("email index name cannot be empty")
	}

	return nil
}

// WithEmailIndex sets the name of the email lookup index. The default is
// [DefaultEmailIndex].
func WithEmailIndex(name string) Option {
	return func(o *Options) {
		o.emailIndex = name
	}
}

// WithAPI sets a custom [API] implementation, for example a mock in tests.
func WithAPI(api API) Option {
	return func(o *Options) {
		o.dynamoDBAPI = api
	}
}
