package plc

// Controller ties a session to the tag list and tag services of one Logix
// controller.

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/tonylturner/enipctl/internal/cip/client"
	"github.com/tonylturner/enipctl/internal/cip/protocol"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/config"
	"github.com/tonylturner/enipctl/internal/enip"
	"github.com/tonylturner/enipctl/internal/errors"
	"github.com/tonylturner/enipctl/internal/logging"
	"github.com/tonylturner/enipctl/internal/metrics"
	"github.com/tonylturner/enipctl/internal/taglist"
	"github.com/tonylturner/enipctl/internal/tags"
)

// Identity object status word bits.
const (
	statusMinorRecoverable   = 0x0100
	statusMinorUnrecoverable = 0x0200
	statusMajorRecoverable   = 0x0400
	statusMajorUnrecoverable = 0x0800
	statusFaultMask          = 0x0F00
	statusExtendedMask       = 0x00F0
	extendedIOFaulted        = 0x2
)

// Properties are the controller attributes read from the Identity object.
type Properties struct {
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number"`
	Version      string `json:"version"`
	VendorID     uint16 `json:"vendor_id"`
	DeviceType   uint16 `json:"device_type"`
	ProductCode  uint16 `json:"product_code"`
	Status       uint16 `json:"status"`

	Faulted                 bool `json:"faulted"`
	IOFaulted               bool `json:"io_faulted"`
	MinorRecoverableFault   bool `json:"minor_recoverable_fault"`
	MinorUnrecoverableFault bool `json:"minor_unrecoverable_fault"`
	MajorRecoverableFault   bool `json:"major_recoverable_fault"`
	MajorUnrecoverableFault bool `json:"major_unrecoverable_fault"`
}

// PropertiesFromIdentity decodes the fault flags of the status word.
func PropertiesFromIdentity(id enip.Identity) Properties {
	st := id.Status
	return Properties{
		Name:                    id.ProductName,
		SerialNumber:            id.SerialNumber,
		Version:                 id.Revision,
		VendorID:                id.VendorID,
		DeviceType:              id.DeviceType,
		ProductCode:             id.ProductCode,
		Status:                  st,
		Faulted:                 st&statusFaultMask != 0,
		IOFaulted:               (st&statusExtendedMask)>>4 == extendedIOFaulted,
		MinorRecoverableFault:   st&statusMinorRecoverable != 0,
		MinorUnrecoverableFault: st&statusMinorUnrecoverable != 0,
		MajorRecoverableFault:   st&statusMajorRecoverable != 0,
		MajorUnrecoverableFault: st&statusMajorUnrecoverable != 0,
	}
}

// Controller is a connected Logix controller. Tag operations must not run
// concurrently on the same Tag or Group; the session itself is safe for
// concurrent use.
type Controller struct {
	session  *client.Session
	endpoint string
	log      *logging.Logger
	metrics  *metrics.Sink
	maxPkt   int

	mu         sync.Mutex
	properties Properties
	tagList    *taglist.TagList
}

// New creates a controller from its configuration section.
func New(cfg config.ControllerConfig, logger *logging.Logger, sink *metrics.Sink) (*Controller, error) {
	route, err := cfg.RoutePath()
	if err != nil {
		return nil, errors.WrapConfigError(err, "controller.route_path_hex")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	sess := client.NewSession(client.Options{
		RoutePath:                route,
		Connected:                cfg.Connected(),
		LargeForwardOpen:         cfg.LargeForwardOpen,
		RPI:                      uint32(cfg.RPIMicros),
		ConnectionSize:           cfg.ConnectionSize,
		RequestTimeout:           cfg.RequestTimeout,
		UnconnectedSendTimeoutMs: int(cfg.UnconnectedSendTimeout / time.Millisecond),
		Target:                   cfg.Address,
		Logger:                   logger,
		Metrics:                  sink,
	})
	c := NewWithSession(sess, cfg.Endpoint(), logger)
	c.metrics = sink
	c.maxPkt = cfg.MaxPacketSize
	return c, nil
}

// NewWithSession creates a controller over an existing session.
func NewWithSession(sess *client.Session, endpoint string, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{
		session:  sess,
		endpoint: endpoint,
		log:      logger,
		tagList:  taglist.New(),
	}
}

// Session returns the underlying session.
func (c *Controller) Session() *client.Session { return c.session }

// Endpoint returns the host:port the controller is reached at.
func (c *Controller) Endpoint() string { return c.endpoint }

// Connected reports whether the session can carry requests.
func (c *Controller) Connected() bool {
	return c.session.State().SessionReady()
}

// Connect opens the session and reads the controller properties. With
// fetchTags set the tag list is loaded as well, and a failed upload closes
// the session again.
func (c *Controller) Connect(ctx context.Context, fetchTags bool) error {
	if err := c.session.Connect(ctx, c.endpoint); err != nil {
		host, port := splitEndpoint(c.endpoint)
		return errors.WrapNetworkError(err, host, port)
	}
	if _, err := c.ReadProperties(ctx); err != nil {
		c.log.Info("Reading controller properties failed: %v", err)
	}
	if fetchTags {
		if _, err := c.FetchTagList(ctx); err != nil {
			if cerr := c.session.Close(ctx); cerr != nil {
				c.log.Verbose("Closing session after failed tag list upload: %v", cerr)
			}
			return errors.WrapCIPError(err, "tag list upload")
		}
	}
	return nil
}

// Disconnect closes the session.
func (c *Controller) Disconnect(ctx context.Context) error {
	return c.session.Close(ctx)
}

// ReadProperties reads the Identity object with Get Attribute All.
func (c *Controller) ReadProperties(ctx context.Context) (Properties, error) {
	resp, err := c.session.GetAttributeAll(ctx, int(spec.CIPClassIdentity), 1)
	if err != nil {
		return Properties{}, err
	}
	id, err := enip.DecodeIdentityAttributes(resp.Payload)
	if err != nil {
		return Properties{}, errors.Classify(errors.CategoryProtocol, "controller properties", err)
	}
	props := PropertiesFromIdentity(id)
	c.mu.Lock()
	c.properties = props
	c.mu.Unlock()
	c.log.Verbose("Controller %s, revision %s, serial %s", props.Name, props.Version, props.SerialNumber)
	return props, nil
}

// Properties returns the last properties read.
func (c *Controller) Properties() Properties {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.properties
}

// FetchTagList uploads the controller and program scoped symbols.
func (c *Controller) FetchTagList(ctx context.Context) (*taglist.TagList, error) {
	list := taglist.New()
	if err := list.Fetch(ctx, c.session); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.tagList = list
	c.mu.Unlock()
	c.log.Verbose("Tag list: %d tags in %d programs", len(list.Tags()), len(list.Programs()))
	return list, nil
}

// TagList returns the last uploaded tag list. It is empty until
// FetchTagList succeeds.
func (c *Controller) TagList() *taglist.TagList {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tagList
}

// Template returns a structure template, fetching it on first use.
func (c *Controller) Template(ctx context.Context, id uint16) (*taglist.Template, error) {
	return c.TagList().Template(ctx, c.session, id)
}

// NewTag builds a tag from a poll entry. An empty type is taken from the tag
// list when the tag is known there, DINT otherwise.
func (c *Controller) NewTag(pt config.PollTag) (*tags.Tag, error) {
	var typ spec.DataType
	if pt.Type != "" {
		t, err := spec.ParseDataType(pt.Type)
		if err != nil {
			return nil, err
		}
		typ = t
	} else if entry, ok := c.TagList().GetTag(pt.Name, pt.Program); ok {
		if entry.Type.Structure {
			typ = spec.TypeStructHandle
		} else {
			typ = spec.DataType(entry.Type.Code)
		}
	}
	var opts []tags.Option
	if pt.Elements > 1 {
		opts = append(opts, tags.WithElements(pt.Elements))
	}
	return tags.New(pt.Name, pt.Program, typ, opts...)
}

// ReadTag reads one tag.
func (c *Controller) ReadTag(ctx context.Context, t *tags.Tag) error {
	req, err := t.ReadRequest()
	if err != nil {
		return err
	}
	resp, err := c.session.Request(ctx, req)
	if err != nil {
		t.Fail(err)
		return fmt.Errorf("read %s: %w", t.FullName(), err)
	}
	if err := t.ParseReadResponse(resp.Payload); err != nil {
		t.Fail(err)
		return err
	}
	return nil
}

// WriteTag writes v to one tag.
func (c *Controller) WriteTag(ctx context.Context, t *tags.Tag, v any) error {
	req, err := t.WriteRequest(v)
	if err != nil {
		return err
	}
	t.SetValue(v)
	if _, err := c.session.Request(ctx, req); err != nil {
		t.Fail(err)
		return fmt.Errorf("write %s: %w", t.FullName(), err)
	}
	t.CommitWrite()
	return nil
}

// ReadStructure reads a structure tag and decodes it with its template.
func (c *Controller) ReadStructure(ctx context.Context, t *tags.Tag) (any, error) {
	if err := c.ReadTag(ctx, t); err != nil {
		return nil, err
	}
	raw, handle := t.Raw()
	if handle == 0 && raw == nil {
		return t.Value(), nil
	}
	list := c.TagList()
	id, ok := list.TemplateID(t.Name(), t.Program())
	if !ok {
		return nil, fmt.Errorf("%s: no template in tag list (fetch the tag list first)", t.FullName())
	}
	tmpl, err := list.Template(ctx, c.session, id)
	if err != nil {
		return nil, err
	}
	lookup := func(id uint16) (*taglist.Template, error) {
		return list.Template(ctx, c.session, id)
	}
	return tags.DecodeStructure(tmpl, raw, lookup)
}

// ReadGroup reads every tag of g with as few Multiple Service Packets as the
// packet budget allows.
func (c *Controller) ReadGroup(ctx context.Context, g *tags.Group) error {
	reqs, err := g.ReadRequests()
	if err != nil {
		return errors.Classify(errors.CategoryValidation, "read group", err)
	}
	return c.runGroup(ctx, reqs, g.ApplyReadResponses)
}

// WriteGroup writes every tag of g with a pending value.
func (c *Controller) WriteGroup(ctx context.Context, g *tags.Group) error {
	reqs, err := g.WriteRequests()
	if err != nil {
		return errors.Classify(errors.CategoryValidation, "write group", err)
	}
	return c.runGroup(ctx, reqs, g.ApplyWriteResponses)
}

func (c *Controller) runGroup(ctx context.Context, reqs []tags.Request, apply func(tags.Request, []protocol.CIPResponse) error) error {
	var errs []error
	for _, req := range reqs {
		resp, err := c.session.Request(ctx, req.Data)
		if err != nil && resp.GeneralStatus != spec.StatusEmbeddedError {
			return err
		}
		replies, err := protocol.ParseMultipleServiceResponse(resp.Payload)
		if err != nil {
			return errors.Classify(errors.CategoryProtocol, "multiple service", err)
		}
		if err := apply(req, replies); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewGroup creates a tag group using the configured packet budget.
func (c *Controller) NewGroup() *tags.Group {
	return tags.NewGroup(c.maxPkt)
}

func splitEndpoint(endpoint string) (string, int) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, enip.DefaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, enip.DefaultPort
	}
	return host, port
}
