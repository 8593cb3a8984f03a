// Package consumer drains the tick stream into the store.
//
// Consumers share one group, so each entry is delivered to exactly one of
// them. An entry is acknowledged only after the store has accepted its
// tick; a crash between store and ack causes a redelivery, which the
// store tolerates. Entries left pending by a dead consumer are claimed
// once they exceed a configurable idle age. Corrupt entries are
// acknowledged and dropped so they cannot wedge the group.
package consumer
