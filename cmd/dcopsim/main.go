// Command dcopsim runs a BnB-ADOPT scenario entirely in one process,
// one agent goroutine per variable, wired together over
// transport.InProc, and prints the resulting stats.Solution.
//
// Usage:
//
//	dcopsim run dcop[scenario=chain,n=4]
//	dcopsim run dcop[scenario=cycle,n=5,dup=true]
//
// The scenario spec is parsed as a composable resource identifier
// (CRI): a bracketed shorthand is expanded to a full "dcop[...]" URI,
// parsed with net/url, and its opaque comma-separated key=value pairs
// become the scenario parameters.
package main

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bford/cofo/cri"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bnbadopt/dcop/go/agent"
	"github.com/bnbadopt/dcop/go/core"
	"github.com/bnbadopt/dcop/go/problem"
	"github.com/bnbadopt/dcop/go/stats"
	"github.com/bnbadopt/dcop/go/transport"
)

const usageStr = `
Usage: dcopsim run <spec>

<spec> is a composable resource identifier of the form

	dcop[scenario=<chain|cycle|star>,n=<num-variables>,dup=<true|false>,obj=<min|max>]

scenario chain builds a pseudo-tree with one pseudo-edge-free path;
cycle adds one extra edge closing the path into a cycle, producing a
single pseudo-parent/pseudo-child pair; star centres every other
variable on variable v0. dup=true wraps every transport link in
transport.Duplicating to exercise idempotent duplicate delivery. obj
defaults to min; obj=max is rejected at init, since this engine only
supports minimization.
`

func main() {
	if len(os.Args) < 3 || os.Args[1] != "run" {
		fmt.Println(usageStr)
		os.Exit(1)
	}
	if err := run(os.Args[2]); err != nil {
		log.Fatal(err)
	}
}

func run(spec string) error {
	params, err := parseSpec(spec)
	if err != nil {
		return err
	}

	n, err := strconv.Atoi(params["n"])
	if err != nil || n < 1 {
		return fmt.Errorf("dcopsim: scenario requires n >= 1, got %q", params["n"])
	}
	if obj := params["obj"]; obj == "max" {
		// BnB-ADOPT as implemented here is minimization-only; a
		// maximization request is rejected at init, before any agent
		// goroutine is started.
		return core.ErrMaximization
	}
	dup := params["dup"] == "true"
	scenario := params["scenario"]
	if scenario == "" {
		scenario = "chain"
	}

	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("v%d", i)
	}
	adj, err := buildAdjacency(scenario, names)
	if err != nil {
		return err
	}

	domain := []core.Value{0, 1, 2}
	tree := problem.BuildTree(adj, []string{names[0]})

	reg := prometheus.NewRegistry()
	metrics := stats.NewMetrics(reg)
	sink := stats.NewSink(n, jointCost(adj), metrics)

	net := transport.NewInProcNetwork(64)
	dispatchers := make(map[string]*agent.Dispatcher, n)
	owner := make(map[string]string, n)
	for _, name := range names {
		owner[name] = name
	}

	for _, name := range names {
		inbox := net.Register(name)
		d := agent.NewDispatcher(name, inbox, owner, sink, 1)
		dispatchers[name] = d
	}
	for _, name := range names {
		for _, other := range names {
			if other == name {
				continue
			}
			var p transport.Peer = net.Peer(other)
			if dup {
				p = transport.Duplicating{Peer: p}
			}
			dispatchers[name].AddPeer(other, p)
		}
	}

	for _, name := range names {
		d := dispatchers[name]
		d.Register(name, domain, true)

		var parent string
		hasParent := tree.HasParent[name]
		if hasParent {
			parent = tree.Parent[name]
		}
		children := tree.Children[name]

		space := problem.NewSpace(name)
		for _, other := range neighbours(name, tree) {
			if err := space.AddBinary(other, edgeCost(domain)); err != nil {
				return err
			}
		}

		hSelf, hChild := problem.ZeroHeuristic(domain, children)
		d.InitVariable(name, parent, hasParent, tree.PseudoParents[name], children, tree.PseudoChildren[name], space, hSelf, hChild)
	}

	for _, name := range names {
		go dispatchers[name].Run()
	}

	select {
	case sol := <-sink.Done():
		printSolution(sol)
		return nil
	case <-time.After(30 * time.Second):
		return errors.New("dcopsim: scenario did not converge within 30s")
	}
}

func neighbours(name string, t *problem.Tree) []string {
	var out []string
	if t.HasParent[name] {
		out = append(out, t.Parent[name])
	}
	out = append(out, t.PseudoParents[name]...)
	out = append(out, t.Children[name]...)
	out = append(out, t.PseudoChildren[name]...)
	return out
}

// edgeCost is a fixed, deterministic |a - b| cost table shared by
// every constrained pair, non-negative by construction so AddBinary
// never rejects it.
func edgeCost(domain []core.Value) problem.Binary {
	b := make(problem.Binary, len(domain))
	for _, a := range domain {
		row := make(map[core.Value]core.Utility, len(domain))
		for _, c := range domain {
			diff := int64(a - c)
			if diff < 0 {
				diff = -diff
			}
			row[c] = core.Utility(diff)
		}
		b[a] = row
	}
	return b
}

func buildAdjacency(scenario string, names []string) (map[string][]string, error) {
	adj := make(map[string][]string, len(names))
	add := func(a, b string) {
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}
	switch scenario {
	case "chain":
		for i := 0; i+1 < len(names); i++ {
			add(names[i], names[i+1])
		}
	case "cycle":
		for i := 0; i+1 < len(names); i++ {
			add(names[i], names[i+1])
		}
		if len(names) >= 3 {
			add(names[len(names)-1], names[0])
		}
	case "star":
		for i := 1; i < len(names); i++ {
			add(names[0], names[i])
		}
	default:
		return nil, fmt.Errorf("dcopsim: unknown scenario %q", scenario)
	}
	return adj, nil
}

// jointCost evaluates the total cost of a complete assignment by
// summing edgeCost over every edge in adj exactly once.
func jointCost(adj map[string][]string) stats.CostFunc {
	domain := []core.Value{0, 1, 2}
	cost := edgeCost(domain)
	return func(assignment map[string]core.Value) core.Utility {
		var total core.Utility
		seen := make(map[[2]string]bool)
		for a, nbrs := range adj {
			for _, b := range nbrs {
				key := [2]string{a, b}
				if key[0] > key[1] {
					key[0], key[1] = key[1], key[0]
				}
				if seen[key] {
					continue
				}
				seen[key] = true
				total = core.AddUtility(total, cost[assignment[a]][assignment[b]])
			}
		}
		return total
	}
}

func printSolution(sol stats.Solution) {
	fmt.Printf("total cost: %d\n", sol.TotalCost)
	for name, v := range sol.Assignments {
		fmt.Printf("  %s = %d\n", name, v)
	}
}

// parseSpec parses a dcop[...] composable resource identifier into its
// opaque comma-separated key=value parameters.
func parseSpec(spec string) (map[string]string, error) {
	if len(spec) > 0 && spec[0] == '[' {
		spec = "dcop" + spec
	}
	rawurl, err := cri.URI.From(spec)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "dcop" {
		return nil, errors.New("dcopsim: scenario spec must use the dcop scheme")
	}

	params := make(map[string]string)
	for _, kv := range strings.Split(u.Opaque, ",") {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("dcopsim: malformed parameter %q", kv)
		}
		params[parts[0]] = parts[1]
	}
	return params, nil
}
