package bedrock

// Option is an option for the Bedrock LLM.
type Option func(*options)

type options struct {
	modelID         string
	region          string
	accessKeyID     string
	secretAccessKey string
	sessionToken    string
	client          ConverseAPI
}

// WithModel allows setting a custom modelId.
//
// If not set, the default model is used
// i.e. "anthropic.claude-3-5-haiku-20241022-v1:0"
func WithModel(modelID string) Option {
	return func(o *options) {
		if modelID != "" {
			o.modelID = modelID
		}
	}
}

// WithRegion sets the AWS region, otherwise the default config chain is used.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithStaticCredentials sets the static AWS credentials,
// otherwise the default credentials chain is used.
func WithStaticCredentials(accessKeyID, secretAccessKey, sessionToken string) Option {
	return func(o *options) {
		o.accessKeyID = accessKeyID
		o.secretAccessKey = secretAccessKey
		o.sessionToken = sessionToken
	}
}

// WithClient allows setting a custom Converse client,
// usually *bedrockruntime.Client.
func WithClient(client ConverseAPI) Option {
	return func(o *options) {
		o.client = client
	}
}
