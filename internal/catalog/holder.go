package catalog

import "sync/atomic"

// Holder хранит текущий каталог и позволяет атомарно заменить его при перезагрузке.
type Holder struct {
	current atomic.Pointer[Catalog]
}

// NewHolder создаёт Holder с начальным каталогом.
func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

// Current возвращает действующий каталог.
func (h *Holder) Current() *Catalog {
	return h.current.Load()
}

// Reload загружает каталог из файла и заменяет текущий. При ошибке текущий каталог не меняется.
func (h *Holder) Reload(path string) (*Catalog, error) {
	var (
		c   *Catalog
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	h.current.Store(c)
	return c, nil
}

// Get ищет программу в действующем каталоге.
func (h *Holder) Get(id string) (Scheme, error) {
	return h.Current().Get(id)
}
