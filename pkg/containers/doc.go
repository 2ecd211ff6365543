// Package containers runs staging plugins as docker containers.
//
// A plugin manifest with a container section becomes a Plugin through
// NewFactory. Each Stage call pulls the image if needed, mounts the source
// tree read-only at /staging/src and the droplet directory at /staging/dst,
// and waits for the container to exit. The app's memory and file descriptor
// limits are applied to the container.
//
//	cli, err := containers.NewDockerClient(ctx)
//	if err != nil {
//		return err
//	}
//	d := plugins.NewDiscoverer(dirs, log)
//	d.RegisterDiscovered(ctx, reg, containers.NewFactory(cli, containers.Options{Logger: log}))
package containers
