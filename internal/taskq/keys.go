package taskq

// queueKeys — предвычисленные ключи одной очереди.
type queueKeys struct {
	prefix  string
	pending string
	delayed string
	active  string
}

func keysFor(queue string) queueKeys {
	prefix := "taskq:{" + queue + "}:"
	return queueKeys{
		prefix:  prefix,
		pending: prefix + "pending",
		delayed: prefix + "delayed",
		active:  prefix + "active",
	}
}

func (k queueKeys) task(id string) string {
	return k.prefix + "task:" + id
}

func (k queueKeys) unique(name, key string) string {
	return k.prefix + "unique:" + name + ":" + key
}
