package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/certify-backend/pkg/config"
)

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{CertificateTopic: " certificate-events ", DLQTopic: ""})
	assert.Equal(t, []string{"certificate-events"}, names)
}

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "certify-prod"}
	assert.Equal(t, "projects/certify-prod/topics/certificate-events", c.topicResourceName("certificate-events"))
	assert.Equal(t, "projects/other/topics/x", c.topicResourceName("projects/other/topics/x"))
	assert.Equal(t, "", c.topicResourceName("  "))

	var nilClient *Client
	assert.Equal(t, "", nilClient.topicResourceName("certificate-events"))
	assert.Nil(t, nilClient.DLQPublisher())
}

func TestClientOptionsPrioritizesJSON(t *testing.T) {
	opts := clientOptions(config.GCPConfig{
		CredentialsJSON:        `{"dummy": "value"}`,
		ApplicationCredentials: "/tmp/creds",
	})
	assert.Len(t, opts, 1)
}

func TestClientOptionsWithFile(t *testing.T) {
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds"}), 1)
	assert.Empty(t, clientOptions(config.GCPConfig{}))
}
