package rtc

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// Media is the local audio attached to sending flavors.
// The transport closes it on Disconnect.
type Media interface {
	Track() webrtc.TrackLocal
	Close() error
}

// peerConfig is what a peer factory needs to build one connection.
type peerConfig struct {
	flavor Flavor
	stun   []string
	label  string
	track  webrtc.TrackLocal
}

// peer is the subset of a WebRTC peer connection the transport drives.
type peer interface {
	// Offer creates and applies the local offer, waits for ICE gathering to
	// complete and returns the final local SDP.
	Offer(ctx context.Context) (string, error)
	SetAnswer(sdp string) error
	OnICEStateChange(fn func(webrtc.ICEConnectionState))
	OnTrack(fn func(*webrtc.TrackRemote))
	Close() error
}

// channel is the ordered event data channel.
type channel interface {
	OnOpen(fn func())
	OnClose(fn func())
	OnMessage(fn func(data []byte))
	Send(data []byte) error
	IsOpen() bool
	Close() error
}

type peerFactory func(cfg peerConfig) (peer, channel, error)

// newPionPeer builds a pion peer connection with default codecs and
// interceptors, the transceivers the flavor needs and one ordered data channel.
func newPionPeer(cfg peerConfig) (peer, channel, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, nil, fmt.Errorf("register interceptors: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: cfg.stun}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("new peer connection: %w", err)
	}

	if err := addTransceivers(pc, cfg); err != nil {
		_ = pc.Close()
		return nil, nil, err
	}

	ordered := true
	dc, err := pc.CreateDataChannel(cfg.label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		_ = pc.Close()
		return nil, nil, fmt.Errorf("create data channel: %w", err)
	}

	return &pionPeer{pc: pc}, &pionChannel{dc: dc}, nil
}

func addTransceivers(pc *webrtc.PeerConnection, cfg peerConfig) error {
	recvonly := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}

	switch cfg.flavor {
	case FlavorPlayback:
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recvonly); err != nil {
			return fmt.Errorf("add recvonly transceiver: %w", err)
		}
		return nil

	case FlavorCapture, FlavorDuplex:
		if cfg.track == nil {
			return ErrMissingMedia
		}
		dir := webrtc.RTPTransceiverDirectionSendonly
		if cfg.flavor == FlavorDuplex {
			dir = webrtc.RTPTransceiverDirectionSendrecv
		}
		tr, err := pc.AddTransceiverFromTrack(cfg.track, webrtc.RTPTransceiverInit{Direction: dir})
		if err != nil {
			return fmt.Errorf("add %s transceiver: %w", dir, err)
		}
		go drainRTCP(tr.Sender())
		return nil
	}
	return fmt.Errorf("rtc: unknown flavor %d", cfg.flavor)
}

// drainRTCP reads sender RTCP so interceptors keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

type pionPeer struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeer) Offer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	local := p.pc.LocalDescription()
	if local == nil {
		return "", errors.New("no local description")
	}
	return local.SDP, nil
}

func (p *pionPeer) SetAnswer(sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (p *pionPeer) OnICEStateChange(fn func(webrtc.ICEConnectionState)) {
	p.pc.OnICEConnectionStateChange(fn)
}

func (p *pionPeer) OnTrack(fn func(*webrtc.TrackRemote)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

type pionChannel struct {
	dc *webrtc.DataChannel
}

func (c *pionChannel) OnOpen(fn func())  { c.dc.OnOpen(fn) }
func (c *pionChannel) OnClose(fn func()) { c.dc.OnClose(fn) }

func (c *pionChannel) OnMessage(fn func(data []byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (c *pionChannel) Send(data []byte) error {
	return c.dc.SendText(string(data))
}

func (c *pionChannel) IsOpen() bool {
	return c.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (c *pionChannel) Close() error {
	return c.dc.Close()
}
