package mqttbridge

import (
	"fmt"
	"sync"
	"time"
)

// goalIDGenerator produces unique goal identifiers of the form
// <client>-<seq>-<unix-nanos> so status and result messages can be
// correlated with the goal they belong to.
type goalIDGenerator struct {
	clientID string
	mutex    sync.Mutex
	seq      uint64
}

func newGoalIDGenerator(clientID string) *goalIDGenerator {
	return &goalIDGenerator{clientID: clientID}
}

func (g *goalIDGenerator) generateID() string {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.seq++
	return fmt.Sprintf("%s-%d-%d", g.clientID, g.seq, time.Now().UnixNano())
}
