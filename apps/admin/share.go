package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elecmate/sitebrief/core/share"
	"github.com/elecmate/sitebrief/core/user"
)

var shareChannels = []string{"copy", "whatsapp", "native", "email", "qr"}

type shareOptions struct {
	userID  string
	channel string
	email   string
	size    int
}

func (cli *commandLine) shareCmd() *cobra.Command {
	var opts shareOptions

	cmd := &cobra.Command{
		Use:   "share BRIEFING_ID",
		Short: "Share a briefing's signing link",
		Long: fmt.Sprintf(`Share a briefing's signing link from this machine.

Channels: %v. The link is issued on first use and reused afterwards.`, shareChannels),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || opts.userID == "" {
				return usageErr(cmd)
			}
			return cli.share(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.userID, "user-id", "", "the briefing owner's id")
	cmd.Flags().StringVarP(&opts.channel, "channel", "c", "copy", "the share channel")
	cmd.Flags().StringVar(&opts.email, "email", "", "recipient of the email channel")
	cmd.Flags().IntVar(&opts.size, "size", share.DefaultQRSize, "qr code size in pixels (PNG output)")
	return cmd
}

func (cli *commandLine) channel(cmd *cobra.Command, usr user.User, opts shareOptions) (share.Channel, error) {
	out := cmd.OutOrStdout()
	copyLink := share.CopyLink{Clipboard: cli.clipboard, Manual: out}

	switch opts.channel {
	case "copy":
		return copyLink, nil
	case "whatsapp":
		return share.WhatsApp{Templates: cli.templates, Opener: cli.opener}, nil
	case "native":
		// terminals have no share sheet
		return share.Native{Templates: cli.templates, Fallback: copyLink}, nil
	case "email":
		return share.Email{
			Recipient: opts.email,
			Notifier:  cli.notifier,
			Tracker:   cli.svc.Tracker(usr),
			Templates: cli.templates,
			Opener:    cli.opener,
		}, nil
	case "qr":
		return share.QRCode{Size: opts.size, Out: out, Terminal: stdoutIsTerminal(cmd)}, nil
	}
	return nil, fmt.Errorf("%q: unknown channel (want one of %v)", opts.channel, shareChannels)
}

func (cli *commandLine) share(cmd *cobra.Command, briefingID string, opts shareOptions) error {
	usr := user.User{ID: opts.userID}
	ch, err := cli.channel(cmd, usr, opts)
	if err != nil {
		return err
	}

	sheet := cli.svc.NewShareSheet(usr, briefingID)
	res := sheet.Share(cmd.Context(), ch)
	switch res.Outcome {
	case share.Failed:
		return res.Err
	case share.Cancelled:
		return nil
	}
	if res.Err != nil {
		link, _ := sheet.Link(cmd.Context())
		cli.logger.Warn(fmt.Sprintf("%s share of briefing %s: %v", res.Channel, briefingID, res.Err), res.Err, usr, link)
	}
	if ch.Name() != "qr" || stdoutIsTerminal(cmd) {
		printf(cmd, "%s: %s %s\n", res.Channel, res.Outcome, res.URL)
	}
	return nil
}
