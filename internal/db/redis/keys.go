package redis

import "strings"

// keys lays out the store namespace:
//
//	{prefix}doc:{collection}:{id}      document hash
//	{prefix}idx:{collection}:{name}    FT index
//	{prefix}index:{collection}:{name}  declared spec the FT index was built from
type keys struct {
	prefix string
}

func (k keys) docPrefix(collection string) string {
	return k.prefix + "doc:" + collection + ":"
}

func (k keys) doc(collection, id string) string {
	return k.docPrefix(collection) + id
}

func (k keys) indexPrefix(collection string) string {
	return k.prefix + "idx:" + collection + ":"
}

func (k keys) index(collection, name string) string {
	return k.indexPrefix(collection) + name
}

func (k keys) meta(collection, name string) string {
	return k.prefix + "index:" + collection + ":" + name
}

// indexName strips the collection namespace from an FT index name.
func (k keys) indexName(collection, ftName string) (string, bool) {
	return strings.CutPrefix(ftName, k.indexPrefix(collection))
}
