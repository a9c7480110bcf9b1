package metric

// Tag names.
const (
	TagService      = "service"
	TagStage        = "stage"
	TagOutcome      = "outcome"
	TagArchitecture = "architecture"
	TagView         = "view"

	TagValueSuccess = "success"
	TagValueFailure = "failure"
)

type Tag struct {
	Name  string
	Value string
}

func NewTag(name, value string) Tag {
	return Tag{Name: name, Value: value}
}

// BuildTag renders tags in statsd "name:value" form.
func BuildTag(tags ...Tag) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, TagAsString(t.Name, t.Value))
	}
	return out
}

func TagAsString(name, value string) string {
	return name + ":" + value
}
