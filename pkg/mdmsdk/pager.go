package mdmsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Page size bounds for list endpoints.
const (
	DefaultPageSize = 100
	MinPageSize     = 1
	MaxPageSize     = 2000
)

// PageOptions configure a paging session. Sort and Filter are opaque
// fragments forwarded to the server; they stay fixed for the whole session.
type PageOptions struct {
	// Size is the page size, DefaultPageSize when zero. Must lie in
	// [MinPageSize, MaxPageSize].
	Size   int
	Sort   string
	Filter string
}

// Page is one page of a list endpoint's response. Results are raw JSON
// objects; decoding is the caller's business.
type Page struct {
	Results    []json.RawMessage `json:"results"`
	TotalCount int               `json:"totalCount"`
}

// Pager walks a paged collection in strictly increasing page order starting
// at 0. One paging session is supported at a time; paging state clears
// automatically once the running fetched count reaches the reported total.
// A Pager is not safe for concurrent use.
type Pager struct {
	c      *Client
	path   string
	size   int
	sort   string
	filter string

	started bool
	page    int
	fetched int
	total   int
}

// NewPager builds a Pager for a list endpoint path such as "v1/devices".
func NewPager(c *Client, path string, opts PageOptions) (*Pager, error) {
	size := opts.Size
	if size == 0 {
		size = DefaultPageSize
	}
	if size < MinPageSize || size > MaxPageSize {
		return nil, &InvalidArgumentError{Message: fmt.Sprintf(
			"page size %d out of range [%d, %d]", size, MinPageSize, MaxPageSize)}
	}
	return &Pager{
		c:      c,
		path:   path,
		size:   size,
		sort:   opts.Sort,
		filter: opts.Filter,
	}, nil
}

// FirstPage starts a paging session and fetches page 0.
func (p *Pager) FirstPage(ctx context.Context) (Page, error) {
	p.clear()
	p.started = true

	page, err := p.fetch(ctx, 0)
	if err != nil {
		p.clear()
		return Page{}, err
	}
	p.account(page)
	return page, nil
}

// NextPage fetches the next page of the running session and accumulates the
// fetched count against the server-reported total. Called before FirstPage,
// or after the session exhausted, it returns an empty page without error.
func (p *Pager) NextPage(ctx context.Context) (Page, error) {
	if !p.started {
		return Page{}, nil
	}
	p.page++

	page, err := p.fetch(ctx, p.page)
	if err != nil {
		p.clear()
		return Page{}, err
	}
	p.account(page)
	return page, nil
}

// FetchAll retrieves the entire collection at the Pager's page size,
// concatenating pages in order until the accumulated count reaches the
// server-reported total.
func (p *Pager) FetchAll(ctx context.Context) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for page := 0; ; page++ {
		pg, err := p.fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, pg.Results...)
		if len(all) >= pg.TotalCount || len(pg.Results) == 0 {
			return all, nil
		}
	}
}

// CollectionSize reads the server-reported total count with a minimal
// page=0&page-size=1 request, without fetching the collection. The filter
// still applies, since it changes the total.
func (p *Pager) CollectionSize(ctx context.Context) (int, error) {
	page, err := p.fetchSized(ctx, 0, 1)
	if err != nil {
		return 0, err
	}
	return page.TotalCount, nil
}

// FetchAll retrieves a whole collection in one call, using the maximum page
// size unless opts says otherwise.
func FetchAll(ctx context.Context, c *Client, path string, opts PageOptions) ([]json.RawMessage, error) {
	if opts.Size == 0 {
		opts.Size = MaxPageSize
	}
	p, err := NewPager(c, path, opts)
	if err != nil {
		return nil, err
	}
	return p.FetchAll(ctx)
}

// CollectionSize reads a collection's total count without paging through it.
func CollectionSize(ctx context.Context, c *Client, path string) (int, error) {
	p, err := NewPager(c, path, PageOptions{})
	if err != nil {
		return 0, err
	}
	return p.CollectionSize(ctx)
}

func (p *Pager) account(page Page) {
	p.fetched += len(page.Results)
	p.total = page.TotalCount
	if p.fetched >= p.total {
		p.clear()
	}
}

func (p *Pager) clear() {
	p.started = false
	p.page = 0
	p.fetched = 0
	p.total = 0
}

func (p *Pager) fetch(ctx context.Context, page int) (Page, error) {
	return p.fetchSized(ctx, page, p.size)
}

func (p *Pager) fetchSized(ctx context.Context, page, size int) (Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page-size", strconv.Itoa(size))
	if p.sort != "" {
		q.Set("sort", p.sort)
	}
	if p.filter != "" {
		q.Set("filter", p.filter)
	}

	raw, err := p.c.Get(ctx, p.path+"?"+q.Encode())
	if err != nil {
		return Page{}, err
	}

	var pg Page
	if err := json.Unmarshal(raw, &pg); err != nil {
		return Page{}, fmt.Errorf("failed to decode page %d of %s: %w", page, p.path, err)
	}
	return pg, nil
}
