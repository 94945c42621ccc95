package storage

// Unavailable is the store used where no persistent medium exists, such as a
// one-shot pre-render of a page. Reads find nothing and writes are dropped.
type Unavailable struct{}

var (
	_ CookieStore = Unavailable{}
	_ LocalStore  = Unavailable{}
)

func (Unavailable) Get(string) (string, bool) { return "", false }

func (Unavailable) Set(string, string, ...Option) error { return nil }

func (Unavailable) Delete(string) error { return nil }

func (Unavailable) Load(string, any) error { return errNotFound }

func (Unavailable) Save(string, any) error { return nil }

func (Unavailable) Remove(string) error { return nil }
