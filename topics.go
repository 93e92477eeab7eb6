package astarte

import "strings"

const (
	suffixEmptyCache    = "/control/emptyCache"
	suffixConsumerProps = "/control/consumer/properties"
	suffixProducerProps = "/control/producer/properties"
	controlPrefix       = "/control"
	consumerPropsRel    = "/consumer/properties"
	producerPropsRel    = "/producer/properties"
)

// deviceTopic returns the device's own introspection topic, the
// certificate CN.
func deviceTopic(cn string) string { return cn }

func emptyCacheTopic(cn string) string    { return cn + suffixEmptyCache }
func consumerPropsTopic(cn string) string { return cn + suffixConsumerProps }
func producerPropsTopic(cn string) string { return cn + suffixProducerProps }

// interfaceWildcard returns the subscription topic for every message
// published under ifaceName on this device.
func interfaceWildcard(cn, ifaceName string) string {
	return cn + "/" + ifaceName + "/#"
}

// dataTopic builds the publish/receive topic for one interface+path,
// validating the invariant that path starts with '/'.
func dataTopic(cn, ifaceName, path string) (string, error) {
	if len(path) == 0 || path[0] != '/' {
		return "", newErr("dataTopic", KindInvalidArgument, nil)
	}
	return cn + "/" + ifaceName + path, nil
}

// splitInbound classifies a topic arriving under device_topic/... into
// either a control message or an (interfaceName, path) data message.
func splitInbound(cn, topic string) (isControl bool, controlRel string, ifaceName string, path string, ok bool) {
	if !strings.HasPrefix(topic, cn) {
		return false, "", "", "", false
	}
	rest := topic[len(cn):]
	if strings.HasPrefix(rest, controlPrefix) {
		return true, rest[len(controlPrefix):], "", "", true
	}
	rest = strings.TrimPrefix(rest, "/")
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return false, "", "", "", false
	}
	return false, "", rest[:slash], rest[slash:], true
}
