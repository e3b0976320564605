// Package demostore serves a small fake e-commerce storefront. It exists to
// exercise the discovery and analysis pipeline end to end without touching a
// real shop: category listings with pagination, product detail pages and a
// sitemap, all generated from a deterministic catalog.
package demostore

import (
	"encoding/xml"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Config controls the generated catalog.
type Config struct {
	Port int

	// Categories and the number of products generated per category.
	Categories          []string
	ProductsPerCategory int

	// PageSize is products per listing page.
	PageSize int
}

func DefaultConfig() Config {
	return Config{
		Port:                8900,
		Categories:          []string{"chairs", "lamps", "rugs", "shelves"},
		ProductsPerCategory: 23,
		PageSize:            12,
	}
}

// Product is one catalog entry.
type Product struct {
	ID       int
	Name     string
	Category string
	Price    string
}

// Store is the fixture storefront server.
type Store struct {
	cfg      Config
	products []Product
	byCat    map[string][]Product

	mu     sync.RWMutex
	hidden map[int]bool // products removed at runtime, for before/after runs
}

// New builds the catalog and returns a ready Store.
func New(cfg Config) *Store {
	s := &Store{
		cfg:    cfg,
		byCat:  make(map[string][]Product),
		hidden: make(map[int]bool),
	}

	id := 1000
	for _, cat := range cfg.Categories {
		for i := 1; i <= cfg.ProductsPerCategory; i++ {
			p := Product{
				ID:       id,
				Name:     fmt.Sprintf("%s #%d", titleCase(cat), i),
				Category: cat,
				Price:    fmt.Sprintf("$%d.00", 10+(id%90)),
			}
			s.products = append(s.products, p)
			s.byCat[cat] = append(s.byCat[cat], p)
			id++
		}
	}
	return s
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// TotalProducts returns the catalog size minus runtime-hidden products.
func (s *Store) TotalProducts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products) - len(s.hidden)
}

// Handler returns the storefront's HTTP handler.
func (s *Store) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.homeHandler)
	mux.HandleFunc("/category/", s.categoryHandler)
	mux.HandleFunc("/product/", s.productHandler)
	mux.HandleFunc("/sitemap.xml", s.sitemapHandler)

	// Runtime catalog controls, for demonstrating run comparison.
	mux.HandleFunc("/demo/hide", s.hideHandler)
	mux.HandleFunc("/demo/reset", s.resetHandler)
	return mux
}

// Start runs the storefront until the listener fails.
func (s *Store) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo store on http://localhost%s (%d products)\n", addr, s.TotalProducts())
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Store) visible(products []Product) []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if !s.hidden[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) homeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	type catInfo struct {
		Name  string
		Count int
	}
	data := struct {
		Categories []catInfo
		Featured   []Product
	}{}
	for _, cat := range s.cfg.Categories {
		vis := s.visible(s.byCat[cat])
		data.Categories = append(data.Categories, catInfo{Name: cat, Count: len(vis)})
		if len(vis) > 0 {
			data.Featured = append(data.Featured, vis[0])
		}
	}

	w.Header().Set("Content-Type", "text/html")
	_ = homeTmpl.Execute(w, data)
}

func (s *Store) categoryHandler(w http.ResponseWriter, r *http.Request) {
	cat := strings.TrimPrefix(r.URL.Path, "/category/")
	cat = strings.TrimSuffix(cat, "/")
	products, ok := s.byCat[cat]
	if !ok {
		http.NotFound(w, r)
		return
	}
	products = s.visible(products)

	page := 1
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}

	size := s.cfg.PageSize
	totalPages := (len(products) + size - 1) / size
	if totalPages == 0 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}
	lo := (page - 1) * size
	hi := lo + size
	if hi > len(products) {
		hi = len(products)
	}

	data := struct {
		Category   string
		Total      int
		Page       int
		TotalPages int
		NextPage   int
		PrevPage   int
		Products   []Product
	}{
		Category:   cat,
		Total:      len(products),
		Page:       page,
		TotalPages: totalPages,
		NextPage:   page + 1,
		PrevPage:   page - 1,
		Products:   products[lo:hi],
	}

	w.Header().Set("Content-Type", "text/html")
	_ = categoryTmpl.Execute(w, data)
}

func (s *Store) productHandler(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/product/")
	id, err := strconv.Atoi(strings.TrimSuffix(idStr, "/"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	s.mu.RLock()
	hidden := s.hidden[id]
	s.mu.RUnlock()

	for _, p := range s.products {
		if p.ID == id && !hidden {
			w.Header().Set("Content-Type", "text/html")
			_ = productTmpl.Execute(w, p)
			return
		}
	}
	http.NotFound(w, r)
}

type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []sitemapURL
}

type sitemapURL struct {
	XMLName xml.Name `xml:"url"`
	Loc     string   `xml:"loc"`
}

func (s *Store) sitemapHandler(w http.ResponseWriter, r *http.Request) {
	base := "http://" + r.Host

	set := urlset{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	set.URLs = append(set.URLs, sitemapURL{Loc: base + "/"})
	for _, cat := range s.cfg.Categories {
		set.URLs = append(set.URLs, sitemapURL{Loc: base + "/category/" + cat})
	}
	for _, p := range s.visible(s.products) {
		set.URLs = append(set.URLs, sitemapURL{Loc: fmt.Sprintf("%s/product/%d", base, p.ID)})
	}

	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(set)
}

// hideHandler removes products from the catalog at runtime so two analysis
// runs against the same store produce a comparable delta.
func (s *Store) hideHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := strconv.Atoi(r.FormValue("id"))
	if err != nil {
		http.Error(w, "Invalid product id", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.hidden[id] = true
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Store) resetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	s.hidden = make(map[int]bool)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

var homeTmpl = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html>
<head><title>Demo Furniture Store</title></head>
<body>
    <h1>Demo Furniture Store</h1>
    <p>Everything a small apartment needs.</p>
    <nav>
        <ul>
        {{range .Categories}}
            <li><a href="/category/{{.Name}}">{{.Name}}</a> ({{.Count}} products)</li>
        {{end}}
        </ul>
    </nav>
    <h2>Featured</h2>
    <div class="product-grid">
    {{range .Featured}}
        <div class="product-card">
            <a href="/product/{{.ID}}">{{.Name}}</a>
            <span class="price">{{.Price}}</span>
        </div>
    {{end}}
    </div>
</body>
</html>`))

var categoryTmpl = template.Must(template.New("category").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Category}} - Demo Furniture Store</title></head>
<body>
    <h1>{{.Category}}</h1>
    <p>Showing page {{.Page}} of {{.TotalPages}} ({{.Total}} products total)</p>
    <div class="product-grid">
    {{range .Products}}
        <div class="product-card">
            <a href="/product/{{.ID}}">{{.Name}}</a>
            <span class="price">{{.Price}}</span>
        </div>
    {{end}}
    </div>
    <nav class="pagination">
        {{if gt .Page 1}}<a href="/category/{{.Category}}?page={{.PrevPage}}">Previous</a>{{end}}
        {{if lt .Page .TotalPages}}<a href="/category/{{.Category}}?page={{.NextPage}}">Next</a>{{end}}
    </nav>
    <a href="/">Back to store</a>
</body>
</html>`))

var productTmpl = template.Must(template.New("product").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Name}} - Demo Furniture Store</title></head>
<body>
    <h1>{{.Name}}</h1>
    <p class="price">{{.Price}}</p>
    <p>Category: <a href="/category/{{.Category}}">{{.Category}}</a></p>
    <p>A sturdy, sensible {{.Category}} item for everyday use. Ships flat-packed.</p>
    <button>Add to cart</button>
    <a href="/">Back to store</a>
</body>
</html>`))
