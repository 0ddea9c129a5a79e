package saga

// Topic is a message bus topic name. Names are part of the wire protocol.
type Topic string

const (
	TopicStartSaga                Topic = "start-saga"
	TopicOrchestrator             Topic = "orchestrator"
	TopicFinishSuccess            Topic = "finish-success"
	TopicFinishFail               Topic = "finish-fail"
	TopicProductValidationSuccess Topic = "product-validation-success"
	TopicProductValidationFail    Topic = "product-validation-fail"
	TopicPaymentSuccess           Topic = "payment-success"
	TopicPaymentFail              Topic = "payment-fail"
	TopicInventorySuccess         Topic = "inventory-success"
	TopicInventoryFail            Topic = "inventory-fail"
	TopicNotifyEnding             Topic = "notify-ending"
)

// reservedTopics are owned by the orchestrator and the order service and can
// never be used as a participant topic.
var reservedTopics = map[Topic]struct{}{
	TopicStartSaga:     {},
	TopicOrchestrator:  {},
	TopicFinishSuccess: {},
	TopicFinishFail:    {},
	TopicNotifyEnding:  {},
}

// String implements fmt.Stringer.
func (t Topic) String() string {
	return string(t)
}

// IsTerminal reports whether the topic ends the transition walk.
func (t Topic) IsTerminal() bool {
	return t == TopicFinishSuccess || t == TopicFinishFail
}

// AllTopics lists every topic of the protocol.
func AllTopics() []Topic {
	return []Topic{
		TopicStartSaga,
		TopicOrchestrator,
		TopicFinishSuccess,
		TopicFinishFail,
		TopicProductValidationSuccess,
		TopicProductValidationFail,
		TopicPaymentSuccess,
		TopicPaymentFail,
		TopicInventorySuccess,
		TopicInventoryFail,
		TopicNotifyEnding,
	}
}
