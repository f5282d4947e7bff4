package mocks

import (
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

// MockMQTTClient mocks the parts of pahomqtt.Client the publisher uses.
type MockMQTTClient struct {
	pahomqtt.Client
	mock.Mock
}

func (m *MockMQTTClient) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *MockMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	return m.Called(topic, qos, retained, payload).Get(0).(pahomqtt.Token)
}

func (m *MockMQTTClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

// Token is a completed pahomqtt.Token.
type Token struct {
	Err      error
	TimedOut bool
}

func (t *Token) Wait() bool                     { return !t.TimedOut }
func (t *Token) WaitTimeout(time.Duration) bool { return !t.TimedOut }
func (t *Token) Error() error                   { return t.Err }

func (t *Token) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.TimedOut {
		close(ch)
	}
	return ch
}
