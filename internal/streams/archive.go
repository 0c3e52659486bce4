package streams

// ArchivedStream is the serialized form of a completed stream kept by
// the file storage between restarts.
type ArchivedStream struct {
	Run    string  `json:"run"`
	Key    string  `json:"key"`
	Chunks []Chunk `json:"chunks"`
}

func (a ArchivedStream) ID() string {
	return a.Run + "/" + a.Key
}

// Archive adapts the registry's completed cache to the storage model.
func (r *Registry) Archive() *archiveModel {
	return &archiveModel{r: r}
}

type archiveModel struct {
	r *Registry
}

func (m *archiveModel) GetData() map[string]ArchivedStream {
	keys := m.r.done.Keys()
	if len(keys) == 0 {
		return nil
	}

	data := make(map[string]ArchivedStream, len(keys))
	for _, k := range keys {
		chunks, ok := m.r.done.Get(k)
		if !ok {
			continue
		}
		a := ArchivedStream{Run: k.run, Key: k.key, Chunks: chunks}
		data[a.ID()] = a
	}
	return data
}

func (m *archiveModel) SetData(data map[string]ArchivedStream) {
	for _, a := range data {
		m.r.done.Add(streamKey{a.Run, a.Key}, a.Chunks)
	}
}
