package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepathfinder/taintgraph/ast"
	"github.com/codepathfinder/taintgraph/callgraph"
)

func parse(t *testing.T, src string) ast.Node {
	t.Helper()
	root, err := ast.ParsePython(context.Background(), []byte(src))
	require.NoError(t, err)
	return root
}

func TestBuildLinksMQConsumerToPublisher(t *testing.T) {
	src := `
def on_order(body):
    process(body)

def publish_order():
    channel.basic_consume(queue="orders", on_message_callback=on_order)

def submit():
    channel.basic_publish(routing_key="orders")
`
	root := parse(t, src)
	cg := callgraph.New()
	Build(root, cg)

	var found bool
	for _, e := range cg.Edges() {
		if e.From == "submit" && e.To == "on_order" && e.Type == callgraph.Synthetic && e.Mechanism == callgraph.MechanismMQ {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuildLinksSignalConnectToSend(t *testing.T) {
	src := `
def handler(sender):
    pass

def wire():
    updated.connect(handler)

def notify():
    updated.send(self)
`
	root := parse(t, src)
	cg := callgraph.New()
	Build(root, cg)

	var found bool
	for _, e := range cg.Edges() {
		if e.From == "notify" && e.To == "handler" && e.Type == callgraph.Synthetic && e.Mechanism == callgraph.MechanismSignal {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuildIgnoresUnrelatedCalls(t *testing.T) {
	root := parse(t, "def f():\n    helper()\n")
	cg := callgraph.New()
	Build(root, cg)
	assert.Empty(t, cg.Edges())
}
