package saga

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/order-saga/pkg/enums"
)

// ErrUnmappedTransition is returned when no route exists for a
// (source, status) pair. It means the saga cannot make progress and is a
// configuration defect, never a retry condition.
var ErrUnmappedTransition = errors.New("unmapped saga transition")

// Participant describes one forward step of the chain: the topic that
// triggers it and the topic that compensates it.
type Participant struct {
	Source        enums.EventSource
	ForwardTopic  Topic
	RollbackTopic Topic
	PendingState  enums.SagaState
}

// DefaultChain is the order placement chain: validation, payment, inventory.
var DefaultChain = []Participant{
	{
		Source:        enums.SourceProductValidation,
		ForwardTopic:  TopicProductValidationSuccess,
		RollbackTopic: TopicProductValidationFail,
		PendingState:  enums.SagaStateProductValidationPending,
	},
	{
		Source:        enums.SourcePayment,
		ForwardTopic:  TopicPaymentSuccess,
		RollbackTopic: TopicPaymentFail,
		PendingState:  enums.SagaStatePaymentPending,
	},
	{
		Source:        enums.SourceInventory,
		ForwardTopic:  TopicInventorySuccess,
		RollbackTopic: TopicInventoryFail,
		PendingState:  enums.SagaStateInventoryPending,
	},
}

// Key is the tagged pair the table is indexed by.
type Key struct {
	Source enums.EventSource
	Status enums.SagaStatus
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Source, k.Status)
}

type route struct {
	key   Key
	topic Topic
}

// Table is the saga transition function. It is immutable once built.
type Table struct {
	chain       []Participant
	transitions map[Key]Topic
	states      map[Topic]enums.SagaState
}

// NewTable builds the transition table for chain and checks that it is total
// over every source it knows and that no two routes share a key or a topic.
func NewTable(chain []Participant) (*Table, error) {
	if len(chain) == 0 {
		return nil, errors.New("saga chain is empty")
	}
	if err := checkChain(chain); err != nil {
		return nil, err
	}

	t := &Table{
		chain:       append([]Participant(nil), chain...),
		transitions: make(map[Key]Topic),
		states: map[Topic]enums.SagaState{
			TopicStartSaga:     enums.SagaStateStarted,
			TopicFinishSuccess: enums.SagaStateSuccess,
			TopicFinishFail:    enums.SagaStateFail,
			TopicNotifyEnding:  enums.SagaStateNotified,
		},
	}

	routes := []route{
		{Key{enums.SourceOrchestrator, enums.SagaStatusSuccess}, chain[0].ForwardTopic},
		{Key{enums.SourceOrchestrator, enums.SagaStatusFail}, TopicFinishFail},
		{Key{enums.SourceOrchestrator, enums.SagaStatusRollbackPending}, TopicFinishFail},
	}
	for i, p := range chain {
		forward := TopicFinishSuccess
		if i+1 < len(chain) {
			forward = chain[i+1].ForwardTopic
		}
		backward := TopicFinishFail
		if i > 0 {
			backward = chain[i-1].RollbackTopic
		}
		routes = append(routes,
			route{Key{p.Source, enums.SagaStatusSuccess}, forward},
			route{Key{p.Source, enums.SagaStatusFail}, backward},
			route{Key{p.Source, enums.SagaStatusRollbackPending}, backward},
		)
		t.states[p.ForwardTopic] = p.PendingState
		t.states[p.RollbackTopic] = enums.SagaStateFail
	}

	for _, r := range routes {
		if existing, ok := t.transitions[r.key]; ok {
			return nil, fmt.Errorf("ambiguous saga transition %s: %s and %s", r.key, existing, r.topic)
		}
		t.transitions[r.key] = r.topic
	}

	sources := []enums.EventSource{enums.SourceOrchestrator}
	for _, p := range chain {
		sources = append(sources, p.Source)
	}
	for _, source := range sources {
		for _, status := range enums.SagaStatuses() {
			if _, ok := t.transitions[Key{source, status}]; !ok {
				return nil, fmt.Errorf("saga table is not total: %w for %s", ErrUnmappedTransition, Key{source, status})
			}
		}
	}
	return t, nil
}

// MustNewTable is NewTable for package-level wiring; it panics on an
// invalid chain.
func MustNewTable(chain []Participant) *Table {
	t, err := NewTable(chain)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultTable builds the table for DefaultChain.
func DefaultTable() *Table {
	return MustNewTable(DefaultChain)
}

func checkChain(chain []Participant) error {
	seenSources := map[enums.EventSource]struct{}{}
	seenTopics := map[Topic]struct{}{}
	for i, p := range chain {
		if !p.Source.IsValid() || p.Source == enums.SourceOrchestrator {
			return fmt.Errorf("chain[%d]: invalid participant source %q", i, p.Source)
		}
		if _, ok := seenSources[p.Source]; ok {
			return fmt.Errorf("chain[%d]: duplicate participant %s", i, p.Source)
		}
		seenSources[p.Source] = struct{}{}
		if p.PendingState == "" {
			return fmt.Errorf("chain[%d]: pending state required for %s", i, p.Source)
		}
		for _, topic := range []Topic{p.ForwardTopic, p.RollbackTopic} {
			if topic == "" {
				return fmt.Errorf("chain[%d]: empty topic for %s", i, p.Source)
			}
			if _, ok := reservedTopics[topic]; ok {
				return fmt.Errorf("chain[%d]: topic %s is reserved", i, topic)
			}
			if _, ok := seenTopics[topic]; ok {
				return fmt.Errorf("chain[%d]: topic %s used twice", i, topic)
			}
			seenTopics[topic] = struct{}{}
		}
	}
	return nil
}

// Next returns the topic that follows an outcome of source with status.
func (t *Table) Next(source enums.EventSource, status enums.SagaStatus) (Topic, error) {
	topic, ok := t.transitions[Key{Source: source, Status: status}]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnmappedTransition, Key{Source: source, Status: status})
	}
	return topic, nil
}

// NextFor routes event by its current source and status.
func (t *Table) NextFor(event Event) (Topic, error) {
	return t.Next(event.Source, event.Status)
}

// StateFor reports the saga state an event is in once published to topic.
func (t *Table) StateFor(topic Topic) (enums.SagaState, bool) {
	state, ok := t.states[topic]
	return state, ok
}

// Chain returns a copy of the participant chain.
func (t *Table) Chain() []Participant {
	return append([]Participant(nil), t.chain...)
}

// Participant looks up the chain entry for source.
func (t *Table) Participant(source enums.EventSource) (Participant, bool) {
	for _, p := range t.chain {
		if p.Source == source {
			return p, true
		}
	}
	return Participant{}, false
}

// Len returns the number of participants.
func (t *Table) Len() int {
	return len(t.chain)
}
