package crawler

// Frontier holds the URLs discovered but not yet fetched in one crawl run.
// It is an explicit FIFO queue plus a visited set, so traversal is
// deterministic breadth-first and no URL is enqueued twice. The page budget
// counts fetch attempts, not dequeues: robots-disallowed URLs are skipped
// without spending budget. Not safe for concurrent use; the crawl loop is
// sequential.
type Frontier struct {
	queue   []string
	queued  map[string]struct{}
	visited map[string]struct{}
	budget  int
	spent   int
}

// DefaultPageBudget bounds how many pages a single crawl run may fetch.
const DefaultPageBudget = 200

// NewFrontier builds a Frontier with the given page budget. A non-positive
// budget falls back to DefaultPageBudget.
func NewFrontier(budget int) *Frontier {
	if budget <= 0 {
		budget = DefaultPageBudget
	}
	return &Frontier{
		queued:  make(map[string]struct{}),
		visited: make(map[string]struct{}),
		budget:  budget,
	}
}

// Enqueue adds a normalized URL unless it is already queued or visited.
func (f *Frontier) Enqueue(normalized string) {
	if _, ok := f.visited[normalized]; ok {
		return
	}
	if _, ok := f.queued[normalized]; ok {
		return
	}
	f.queued[normalized] = struct{}{}
	f.queue = append(f.queue, normalized)
}

// Next removes and returns the oldest pending URL, marking it visited so it
// can never be enqueued again. The second return is false when the queue is
// empty or the budget is spent.
func (f *Frontier) Next() (string, bool) {
	if len(f.queue) == 0 || f.spent >= f.budget {
		return "", false
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	delete(f.queued, next)
	f.visited[next] = struct{}{}
	return next, true
}

// Spend consumes one unit of page budget. The crawl loop calls it when a URL
// is actually fetched; robots skips do not spend.
func (f *Frontier) Spend() {
	f.spent++
}

// Spent reports how many fetch attempts have been budgeted so far.
func (f *Frontier) Spent() int {
	return f.spent
}

// Pending reports how many URLs are waiting in the queue.
func (f *Frontier) Pending() int {
	return len(f.queue)
}
